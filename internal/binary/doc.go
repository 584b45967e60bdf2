// Package binary fetches, verifies and unpacks RabbitMQ distribution archives.
//
// # Cache Model
//
// Artifacts are downloaded to a caller-chosen target file which doubles as a
// cache entry: when caching is enabled and the target exists and is
// non-empty, no network access happens at all. A failed download or
// extraction can remove the target so the next run does not reuse a corrupt
// entry.
//
// # Components
//
//   - Downloader: HTTP(S) GET with connect and read-stall timeouts, optional
//     HTTP or SOCKS5 proxy, optional cross-process cache lock
//   - Extractor: tar.gz, tar.xz and zip extraction, idempotent per app folder
//   - Verifier: optional OpenPGP detached-signature and SHA256 checks
package binary
