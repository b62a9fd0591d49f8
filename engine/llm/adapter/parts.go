package llmadapter

// ContentPart is one element of a multimodal message payload.
type ContentPart interface {
	isContentPart()
}

// TextPart is a plain text segment.
type TextPart struct {
	Text string
}

// ImageURLPart references an image by URL or data URI.
type ImageURLPart struct {
	URL string
}

// BinaryPart carries inline binary content with its MIME type.
type BinaryPart struct {
	MIMEType string
	Data     []byte
}

func (TextPart) isContentPart()     {}
func (ImageURLPart) isContentPart() {}
func (BinaryPart) isContentPart()   {}
