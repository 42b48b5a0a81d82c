package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		fileName string
		want     Format
	}{
		{"report.pdf", FormatPDF},
		{"report.PDF", FormatPDF},
		{"scan.png", FormatImage},
		{"scan.JPEG", FormatImage},
		{"notes.txt", FormatText},
		{"data.csv", FormatText},
		{"contract.docx", FormatOffice},
		{"legacy.doc", FormatOffice},
		{"budget.xlsx", FormatOffice},
		{"deck.pptx", FormatOffice},
		{"letter.odt", FormatOffice},
		{"old.rtf", FormatOffice},
		{"archive.zip", FormatUnsupported},
		{"installer.exe", FormatUnsupported},
		{"noextension", FormatUnsupported},
		{"", FormatUnsupported},
		{"dir/nested.docx", FormatOffice},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.fileName), "file %q", tc.fileName)
	}
}

func TestFormatPredicates(t *testing.T) {
	assert.True(t, FormatOffice.NeedsConversion())
	assert.False(t, FormatPDF.NeedsConversion())

	assert.True(t, FormatPDF.Previewable())
	assert.True(t, FormatOffice.Previewable())
	assert.True(t, FormatImage.Previewable())
	assert.False(t, FormatUnsupported.Previewable())
}
