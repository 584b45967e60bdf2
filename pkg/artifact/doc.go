// Package artifact describes RabbitMQ releases and where to fetch them.
//
// A Version is a closed union with three kinds:
//   - Predefined: a known release with its Erlang requirement and artifact layout
//   - Base: any release number that follows the official naming convention
//   - Unknown: a caller-supplied extraction folder for artifacts that don't
//
// A Repository turns a (Version, OperatingSystem) pair into a download URL.
// The official repositories know the per-OS file naming scheme; a single-URL
// repository returns its fixed location for every request.
//
// # Usage
//
//	v, err := artifact.ParseVersion("3.8.19")
//	if err != nil {
//	    return err
//	}
//	url, err := artifact.GitHub.URL(v, artifact.OSUnix)
package artifact
