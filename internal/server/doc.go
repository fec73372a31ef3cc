// Package server implements a BLE bridge emulator.
//
// A real bridge sits next to the tracker, holds the BLE connection and
// relays each 20-byte notification as one binary WebSocket message. This
// server does the same for an emulated tracker, so the download path can be
// exercised end to end without hardware.
//
// # Endpoints
//
//   - Config.Path (default "/link"): WebSocket link. An optional ?device=
//     query must match the configured tracker name (see discovery.MatchName).
//   - /status: JSON document describing the emulated tracker.
//
// # Usage Example
//
//	tracker, _ := emulator.New(image)
//	srv, err := server.New(&server.Config{
//	    Port:     8080,
//	    Device:   "ID107 HR",
//	    Instance: "bandbridge-bench",
//	}, tracker)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// When Instance is set the server advertises itself as a "_bandbridge._tcp"
// service so the scan command finds it. Setting CertPath and KeyPath serves
// wss:// instead of ws://.
package server
