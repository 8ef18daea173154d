//go:build !pcap
// +build !pcap

package luxnet

import "fmt"

// NewRealPCAPReaderFactory is a stub used when PCAP support is disabled.
// Build with -tags=pcap to enable capture replay.
func NewRealPCAPReaderFactory() PCAPReaderFactory {
	return &stubReaderFactory{}
}

type stubReaderFactory struct{}

func (f *stubReaderFactory) NewReader() PCAPReader {
	return &stubReader{}
}

// stubReader fails on Open so callers get a clear error at replay time
// rather than a silent empty capture.
type stubReader struct{}

func (r *stubReader) Open(filename string) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to replay capture files")
}

func (r *stubReader) SetBPFFilter(filter string) error { return nil }
func (r *stubReader) NextPacket() (*PCAPPacket, error) { return nil, nil }
func (r *stubReader) Close()                           {}
func (r *stubReader) LinkType() int                    { return 0 }
