// Package subscriber runs the broker session of mqtt2influx.
//
// A Session dials the broker, subscribes each route topic once and hands
// every delivered message to the ingestion router, one at a time. It
// tracks the connection as Disconnected, Connecting or Connected; the
// transport restores subscriptions after a reconnect.
//
//	session, err := subscriber.New(dial, router, router.Topics(),
//	    subscriber.WithQoS(1),
//	    subscriber.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	return session.Run(ctx)
package subscriber
