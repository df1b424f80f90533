// Package respwire is a low-level Redis client connection built on the
// zero-copy RESP transport core in the protocol package.
//
// A Conn owns one network connection. Commands are serialized into pooled
// segments by a protocol.CommandWriter and replies are framed by a
// protocol.StreamSource, so large payloads are neither copied on the way
// out nor re-read on the way in.
//
// Basic usage:
//
//	conn, err := respwire.Dial(ctx, "localhost:6379",
//		respwire.WithReadTimeout(5*time.Second),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	reply, err := conn.Do(ctx, "SET", "key", "value")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(reply) // OK
//
// Replies can also be taken as raw leases, which avoids building a value
// tree:
//
//	lease, err := conn.DoLease(ctx, "GET", "key")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer lease.Release()
//
// The library supports:
//
//   - RESP2 and RESP3 replies, including maps, sets and pushes
//   - Pipelining of many commands in a single round trip
//   - Context cancellation of blocked reads
//   - Pluggable logging and metrics (see the metrics package for Prometheus)
//
// Connection pooling, retries, authentication and TLS are left to callers.
package respwire
