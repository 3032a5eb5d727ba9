package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/types"
)

func TestParserFactory(t *testing.T) {
	factory := NewParserFactory(testPolicy, nil)

	html, err := factory.ForFormat(types.FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, ParserTypeHTML, html.GetParserType())

	pdf, err := factory.ForFormat(types.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, ParserTypePDF, pdf.GetParserType())

	_, err = factory.ForFormat("docx")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnsupportedFormat))

	assert.Error(t, factory.RegisterParser(types.FormatHTML, nil))
	assert.Error(t, factory.RegisterParser("docx", html))
	assert.Panics(t, func() { factory.MustRegisterParser(types.FormatPDF, nil) })
	assert.NotPanics(t, func() { factory.MustRegisterParser(types.FormatPDF, pdf) })

	_, err = factory.Parse(context.Background(), nil)
	assert.Error(t, err)
}

func TestParserTypes(t *testing.T) {
	assert.True(t, IsValidParserType(ParserTypeHTML))
	assert.True(t, IsValidParserType(ParserTypePDF))
	assert.False(t, IsValidParserType("csv"))
	assert.Len(t, SupportedParserTypes(), 2)
}
