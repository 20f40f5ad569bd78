package http1

type parserState int

const (
	eStartLine parserState = iota
	eHeaderLine
	eComplete
	eFailed
)
