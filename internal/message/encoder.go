package message

// Encoder transforms call text into the restricted character set a pager
// family's firmware expects. It is applied to alphanumeric content only;
// numeric messages bypass it.
type Encoder func(string) string

// NopEncoder passes text through unchanged. Used for families whose devices
// accept plain ASCII.
func NopEncoder(s string) string { return s }

// SkyperEncoder transliterates text into the Skyper alphanumeric charset.
// Skyper firmware maps each code point one position off the ASCII table, so
// every byte is shifted by one before transmission.
func SkyperEncoder(s string) string {
	b := []byte(s)
	for i := range b {
		b[i]++
	}
	return string(b)
}
