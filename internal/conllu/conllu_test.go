package conllu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# sent_id = 1
# text = They buy books
1	They	they	PRON	PRP	Case=Nom	2	nsubj	_	_
2	buy	buy	VERB	VBP	_	0	root	_	_
3	books	book	NOUN	NNS	Number=Plur	2	obj	_	_

1-2	vámonos	_	_	_	_	_	_	_	_
1	vamos	ir	VERB	_	_	0	root	_	_
2	nos	nosotros	PRON	_	_	1	obj	_	_
2.1	nos	_	_	_	_	_	_	_	_
`

func TestParse(t *testing.T) {
	sents, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, sents, 2)

	first := sents[0]
	assert.Equal(t, []string{"# sent_id = 1", "# text = They buy books"}, first.Comments)
	require.Equal(t, 3, first.Len())
	assert.Equal(t, Token{
		ID: 1, Form: "They", Lemma: "they", UPOS: "PRON", XPOS: "PRP",
		Feats: "Case=Nom", Head: 2, Deprel: "nsubj",
	}, first.Tokens[0])
	assert.Equal(t, []int{-1, 2, 0, 2}, first.Heads())
	assert.True(t, first.FullyAnnotated())

	// the range row 1-2 and the empty node 2.1 are skipped
	second := sents[1]
	require.Equal(t, 2, second.Len())
	assert.Equal(t, "vamos", second.Tokens[0].Form)
	assert.Equal(t, "nos", second.Tokens[1].Form)
}

func TestParsePartialAnnotation(t *testing.T) {
	in := "1\tone\t_\t_\t_\t_\t_\t_\t_\t_\n" +
		"2\ttwo\t_\t_\t_\t_\t0\troot\t_\t_\n"
	sents, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, sents, 1)
	assert.Equal(t, Unannotated, sents[0].Tokens[0].Head)
	assert.Equal(t, 0, sents[0].Tokens[1].Head)
	assert.False(t, sents[0].FullyAnnotated())
	assert.Equal(t, []int{-1, -1, 0}, sents[0].Heads())
}

func TestParseErrors(t *testing.T) {
	for name, in := range map[string]string{
		"too few fields":  "1\tword\n",
		"bad id":          "x\tword\t_\t_\t_\t_\t0\troot\t_\t_\n",
		"id out of order": "2\tword\t_\t_\t_\t_\t0\troot\t_\t_\n",
		"bad head":        "1\tword\t_\t_\t_\t_\t-3\troot\t_\t_\n",
		"head too large":  "1\tword\t_\t_\t_\t_\t5\troot\t_\t_\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	sents, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, Write(&sb, sents))

	again, err := Parse(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Len(t, again, len(sents))
	for i := range sents {
		assert.Equal(t, sents[i].Comments, again[i].Comments)
		assert.Equal(t, sents[i].Tokens, again[i].Tokens)
	}
}
