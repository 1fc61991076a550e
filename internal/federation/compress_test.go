package federation

import "testing"

func TestCompressTemplateBlobRoundTrip(t *testing.T) {
	blob := []byte("0707c79ab0b1061dfc14adcbd04cc9e0ed09e49730840f3c7dc699e28c94dd8c6a9c7a88b8d7e0100")

	compressed := CompressTemplateBlob(blob)
	decompressed, err := DecompressTemplateBlob(compressed)
	if err != nil {
		t.Fatalf("DecompressTemplateBlob: %v", err)
	}
	if string(decompressed) != string(blob) {
		t.Errorf("decompressed = %q, want %q", decompressed, blob)
	}
}

func TestDecompressTemplateBlob_PassesThroughUncompressed(t *testing.T) {
	blob := []byte("not zstd data")
	got, err := DecompressTemplateBlob(blob)
	if err != nil {
		t.Fatalf("DecompressTemplateBlob: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("got %q, want passthrough %q", got, blob)
	}
}
