// Package lua provides Redis-compatible Lua script execution.
//
// Scripts see KEYS and ARGV and reach the data through redis.call and
// redis.pcall, which forward each command to an Executor. A *respwire.Conn
// is an Executor, so scripts can run client-side against a remote server;
// internal/resptest plugs in an in-process executor to serve EVAL.
//
// Replies are converted to Lua and back following Redis conventions: nulls
// are false, status replies are {ok=...} tables, error replies are
// {err=...} tables, and numbers returned from a script are truncated to
// integers.
package lua
