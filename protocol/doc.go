// Package protocol implements the transport core of a Redis Serialization
// Protocol (RESP2 and RESP3) client: zero-copy decoding, framing of complete
// top-level values, pooled segmented memory with reference-counted leases,
// and low-allocation command serialization.
//
// Reading replies from a connection:
//
//	src, err := protocol.NewStreamSource(conn)
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//	for {
//		lease, err := src.ReadNext(ctx)
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		value, err := protocol.ParseValue(lease)
//		lease.Release()
//		// Process value
//	}
//
// Writing a command:
//
//	w, _ := protocol.NewCommandWriter(0, protocol.DefaultCommandBlockSize)
//	_ = w.WriteCommandString("SET", 2)
//	_ = w.WriteString("key")
//	_ = w.WriteString("value")
//	req, _ := w.Detach()
//	_, err := req.WriteTo(conn)
//	req.Recycle()
//
// The package supports these RESP data types:
//   - Simple strings, errors and integers
//   - Bulk strings (including null)
//   - Arrays (including null)
//   - RESP3 null, boolean, double, big number, bulk error and verbatim string
//   - RESP3 maps, sets and pushes
//
// Streamed strings and attributes are rejected as protocol violations.
package protocol
