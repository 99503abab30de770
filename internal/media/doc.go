// Package media holds the media reference that ties a source locator to its
// cached copy, and the image decoder that turns cached files into
// image.Image values for the RAM cache.
//
// A Ref is either a path (local file or http(s) URL) or an embedded resource
// ID. Its cached path is filled in by the pipeline after a successful
// persist and is never cleared, even when the file is later deleted.
//
// Decoding prefers libvips (govips) when InitVips has been called, shrinking
// at load time, and falls back to the pure Go imaging library.
package media
