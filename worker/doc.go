// Package worker manages the pool of script workers.
//
// A worker is a goja scope driven by its own goroutine. It shares no memory
// with the host: messages in both directions are CBOR frames (see package
// protocol), and replies are posted to the host event loop so that a
// worker's messages reach the Receiver in the order it sent them.
//
//	pool := worker.NewPool(worker.Options{Loop: lp})
//	pool.SetReceiver(dispatcher)
//	h, err := pool.Spawn(ctx, worker.Inline(`self.onmessage = e => ...`))
//	_ = pool.Send(h, protocol.Text("hello"))
//	pool.Stop(h) // pending jobs of h are abandoned via table observers
//
// Scripts can be given inline or by reference. References are resolved by a
// Loader: relative paths and file: URLs under a root directory, and http(s)
// URLs through resty when remote loading is allowed.
package worker
