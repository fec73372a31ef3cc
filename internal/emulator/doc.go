// Package emulator plays the tracker side of the download protocol.
//
// A Tracker holds a flash image and answers GetVersion, NewPairing,
// GetDataInfo, GetData and GetDataFinish with the frames the band firmware
// sends. It runs over any Port: the in-memory link.Peer in tests, a serial
// port for bench work, or a WebSocket connection through the bridge server.
//
// Faults can be injected to exercise host error paths:
//
//	tr, _ := emulator.New(emulator.PatternImage(2),
//	    emulator.WithCorruption(emulator.Corruption{Block: 0, Frame: 49, Offset: 5, Mask: 0x01}),
//	)
//	go tr.Serve(ctx, peer)
package emulator
