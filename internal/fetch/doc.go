// Package fetch opens byte streams for media refs.
//
// A Provider turns a *media.Ref into a Stream. HTTPProvider handles http and
// https URLs, FileProvider local paths, and ResourceProvider embedded
// resources looked up by ID in an fs.FS. Router picks one of them per ref:
//
//	router := &fetch.Router{
//		HTTP:     fetch.NewHTTPProvider(30 * time.Second),
//		File:     fetch.NewFileProvider(),
//		Resource: fetch.NewResourceProvider(assets, names),
//	}
//	stream, err := router.Open(ctx, ref)
//
// The caller owns Stream.Body and must close it.
package fetch
