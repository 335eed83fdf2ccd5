package core

// Resolution names a rendering tier and its target width in pixels.
// Height follows from the page aspect ratio.
type Resolution struct {
	Name  string
	Width int
}

// DefaultResolutions is the fixed rendering table the pipeline produces for
// every page: a small thumbnail for listings and a medium size for reading.
var DefaultResolutions = []Resolution{
	{Name: "thumbnail", Width: 150},
	{Name: "medium", Width: 800},
}

// PageReader is an open page-oriented document. Pages are 1-indexed.
// Implementations hold a native handle; Close must be called on every exit
// path, so callers defer it immediately after a successful Open.
type PageReader interface {
	PageCount() int
	// Dimensions returns the original page size in pixels.
	// Fails with ErrPageOutOfRange outside [1, PageCount].
	Dimensions(page int) (width int, height int, err error)
	// Render rasterizes one page as JPEG, scaled to targetWidth with the
	// aspect ratio preserved, encoded at quality (1-100).
	Render(page, targetWidth, quality int) ([]byte, error)
	// RenderAll renders the page at every configured resolution, keyed by
	// resolution name.
	RenderAll(page int) (map[string][]byte, error)
	ExtractText(page int) (string, error)
	Close() error
}

// DocumentOpener parses raw document bytes into a PageReader. Open fails
// with ErrInvalidDocument when the bytes are not the supported format.
type DocumentOpener interface {
	Open(data []byte) (PageReader, error)
}
