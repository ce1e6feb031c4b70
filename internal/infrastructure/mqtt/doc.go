// Package mqtt provides MQTT client connectivity for mqtt2influx.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) and retained online/offline status
//   - Connection health monitoring
//
// # Message Delivery
//
// Handlers run one at a time on the paho router goroutine, in the order
// the broker delivered the messages. Handler panics are recovered and
// logged; they never take down the connection.
//
// # Security Considerations
//
//   - TLS is recommended outside a trusted network (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("sensors/+/temperature", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
