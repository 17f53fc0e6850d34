/*
Package ninep implements the 9P2000 distributed filesystem protocol:
wire codec, server dispatcher, client multiplexer, fid table, session
pool, transport framing contract, and a union/synthetic filesystem
composer.

Subpackages:

  - wire: bit-exact message and stat encoding/decoding
  - fidtable: server-side fid allocation
  - tagtable: client-side tag allocation
  - transport: the framing contract and helpers
  - fs: the backend capability interface
  - server: the request dispatcher
  - client: the request/response multiplexer
  - session: the connection pool for multi-client servers
  - union: path-prefix routing across multiple fs.FileSystem backends
  - sysfs: a reference in-memory synthetic backend
  - auth: verifier combinators for the Tauth handshake

This package itself holds only the error taxonomy shared by every
layer above.
*/
package ninep
