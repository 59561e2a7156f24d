/*
Package s3 provides a provider that exposes an S3 bucket prefix as a media tree.

# Layout

The bucket is listed with "/" as delimiter, so the usual folder convention
becomes the container hierarchy:

	s3://media/music/                 root box (configured prefix)
	s3://media/music/rock/            box, id "music/rock/"
	s3://media/music/rock/one.mp3     audio, id "music/rock/one.mp3"
	s3://media/music/cover.jpg        image, id "music/cover.jpg"
	s3://media/music/notes.txt        skipped, not a media type

Boxes are delivered before objects, each group in key order. Objects whose
extension maps to no audio, video or image type are not listed. Keys outside
the configured prefix are reported as NOT_FOUND.

# Metadata

Browse fills id, title, url and mime from the key alone. Resolve issues a
HeadObject and additionally reads the stored Content-Type and user metadata
(x-amz-meta-title, -artist, -album, -genre, -description).

# Usage

	cfg := s3.NewDefaultConfig()
	cfg.Bucket = "my-media"
	cfg.Prefix = "music/"

	provider, err := s3.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	registry.Add(provider)

Open loads AWS configuration from the default chain unless static
credentials are configured, and fails when HeadBucket does.

# Errors

NoSuchKey, NotFound and NoSuchBucket become NOT_FOUND. Context cancellation
is returned unchanged so a cancelled browse terminates with context.Canceled.
Everything else is wrapped as BACKEND_ERROR with the failing S3 operation.
*/
package s3
