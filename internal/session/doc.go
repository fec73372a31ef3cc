// Package session runs one flash download from a tracker.
//
// A Session owns a link.Transport for the duration of Run and walks the
// tracker through its states:
//
//	Pairing -> Connected -> Ready -> Receiving -> Ready
//
// with Disconnected as the terminal state when the link goes away. Every
// transition and per-block progress update is published on the channel
// returned by Events. Every event is delivered in order; the session waits
// for the observer, so it must keep reading until the channel closes.
//
// Usage:
//
//	t := link.NewWebSocket(bridge.LinkURL(device), nil)
//	s := session.New(t, storage.NewFileSink(dir, device),
//	    session.WithReceiveTimeout(10*time.Second),
//	)
//	go ui.Watch(ctx, s.Events(), os.Stdout)
//	result, err := s.Run(ctx)
//
// Errors returned by Run are either *TransportError (link failures),
// *SinkError (the image could not be stored) or one of the protocol
// package errors (HandshakeFailed, BlockTransferFailed, UnsupportedDataRange).
package session
