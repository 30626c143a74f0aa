// Package gosocks provides a Go client for the gosocks publish/subscribe
// service.
//
// A [Session] owns one WebSocket connection and multiplexes any number of
// channel subscriptions over it. Channels whose name starts with "private-"
// track their members and accept messages published by clients; all other
// channels are broadcast-only.
//
// # Thread Safety
//
// [Session] and [Channel] are safe for concurrent use by multiple goroutines.
// Inbound envelopes are processed one at a time, in arrival order, on the
// session's read goroutine; handlers run on that goroutine and should not
// block for long.
//
// # Basic Usage
//
//	ctx := context.Background()
//
//	session := gosocks.New(gosocks.WithTLS(true))
//
//	// Subscriptions may be made before the connection exists.
//	room := session.Subscribe("private-room",
//	    gosocks.OnEvent(func(env *gosocks.Envelope) {
//	        fmt.Println(env.Event, env.Data)
//	    }),
//	    gosocks.OnMemberAdded(func(env *gosocks.Envelope) {
//	        fmt.Println("joined:", env.SenderID())
//	    }),
//	)
//
//	if err := session.Init(ctx, authKey); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Disconnect(true)
//
//	// Join every subscribed channel on the server.
//	if err := session.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	err := room.Send(ctx, map[string]string{"text": "hello"}, gosocks.WithEvent("chat"))
//
// # Reconnecting
//
// The server does not remember membership across connections. [Session.Connect]
// replays a join for every subscribed channel; [WithReconnect] redials after an
// unexpected close and does this automatically:
//
//	session := gosocks.New(
//	    gosocks.WithReconnect(gosocks.DefaultBackoff()),
//	    gosocks.WithOnClose(func(code gosocks.StatusCode, reason string) {
//	        log.Printf("closed: %d %s", code, reason)
//	    }),
//	)
//
// # Observability
//
// Use [WithLogger], [WithOnSend], and [WithOnReceive] to add logging and
// monitoring to the session:
//
//	session := gosocks.New(
//	    gosocks.WithLogger(slog.Default()),
//	    gosocks.WithOnReceive(func(frame []byte) {
//	        metrics.FramesReceived.Inc()
//	    }),
//	)
package gosocks
