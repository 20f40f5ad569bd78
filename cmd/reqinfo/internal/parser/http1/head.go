package http1

// Head is a parsed request head. Header names are kept exactly as received;
// when a name repeats, the last value wins.
type Head struct {
	Method   string
	Path     string
	Protocol string
	Headers  map[string]string
}

// Header returns the value of the header with the exact name key.
func (h Head) Header(key string) (string, bool) {
	value, found := h.Headers[key]
	return value, found
}
