// Package conllu reads and writes dependency treebanks in the CoNLL-U
// format. Multiword-token and empty-node rows are skipped on input; an
// underscore in the HEAD column marks a position whose head is unannotated
// and is preserved as -1 for partial supervision.
package conllu

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Unannotated is the head value of a token whose gold head is unknown.
const Unannotated = -1

// Token is one syntactic word of a sentence. Positions are 1-based; head 0
// is the pseudo-root.
type Token struct {
	ID     int
	Form   string
	Lemma  string
	UPOS   string
	XPOS   string
	Feats  string
	Head   int
	Deprel string
}

// Sentence is a block of tokens plus its preceding comment lines.
type Sentence struct {
	Comments []string
	Tokens   []Token
}

// Len returns the number of tokens.
func (s *Sentence) Len() int { return len(s.Tokens) }

// Heads returns the head vector indexed by position, with entry 0 unused.
func (s *Sentence) Heads() []int {
	heads := make([]int, len(s.Tokens)+1)
	heads[0] = Unannotated
	for _, tok := range s.Tokens {
		heads[tok.ID] = tok.Head
	}
	return heads
}

// FullyAnnotated reports whether every token has a gold head.
func (s *Sentence) FullyAnnotated() bool {
	for _, tok := range s.Tokens {
		if tok.Head == Unannotated {
			return false
		}
	}
	return true
}

// ReadFile parses all sentences of a CoNLL-U file.
func ReadFile(path string) ([]*Sentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("conllu: %w", err)
	}
	defer func() { _ = f.Close() }()
	sents, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("conllu: %s: %w", path, err)
	}
	return sents, nil
}

// Parse reads sentences from r until EOF.
func Parse(r io.Reader) ([]*Sentence, error) {
	var sents []*Sentence
	cur := &Sentence{}
	lineno := 0

	flush := func() {
		if len(cur.Tokens) > 0 {
			sents = append(sents, cur)
		}
		cur = &Sentence{}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineno++
		line := sc.Text()
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(line, "#"):
			cur.Comments = append(cur.Comments, line)
		default:
			fields := strings.Split(line, "\t")
			if len(fields) < 8 {
				return nil, fmt.Errorf("line %d: %d fields, need at least 8", lineno, len(fields))
			}
			// multiword tokens (1-2) and empty nodes (1.1) are not
			// syntactic words
			if strings.ContainsAny(fields[0], "-.") {
				continue
			}
			id, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad token id %q", lineno, fields[0])
			}
			if id != len(cur.Tokens)+1 {
				return nil, fmt.Errorf("line %d: token id %d out of order", lineno, id)
			}
			head := Unannotated
			if fields[6] != "_" {
				head, err = strconv.Atoi(fields[6])
				if err != nil || head < 0 {
					return nil, fmt.Errorf("line %d: bad head %q", lineno, fields[6])
				}
			}
			cur.Tokens = append(cur.Tokens, Token{
				ID:     id,
				Form:   fields[1],
				Lemma:  fields[2],
				UPOS:   fields[3],
				XPOS:   fields[4],
				Feats:  fields[5],
				Head:   head,
				Deprel: fields[7],
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()

	for i, sent := range sents {
		for _, tok := range sent.Tokens {
			if tok.Head > sent.Len() {
				return nil, fmt.Errorf("sentence %d: head %d of token %d exceeds length %d",
					i+1, tok.Head, tok.ID, sent.Len())
			}
		}
	}
	return sents, nil
}

// WriteFile writes sentences to a CoNLL-U file.
func WriteFile(path string, sents []*Sentence) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("conllu: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := Write(f, sents); err != nil {
		return fmt.Errorf("conllu: %s: %w", path, err)
	}
	return f.Close()
}

// Write renders sentences in the ten-column CoNLL-U layout.
func Write(w io.Writer, sents []*Sentence) error {
	bw := bufio.NewWriter(w)
	for _, sent := range sents {
		for _, c := range sent.Comments {
			fmt.Fprintln(bw, c)
		}
		for _, tok := range sent.Tokens {
			head := "_"
			if tok.Head != Unannotated {
				head = strconv.Itoa(tok.Head)
			}
			fmt.Fprintf(bw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t_\t_\n",
				tok.ID, orUnderscore(tok.Form), orUnderscore(tok.Lemma),
				orUnderscore(tok.UPOS), orUnderscore(tok.XPOS),
				orUnderscore(tok.Feats), head, orUnderscore(tok.Deprel))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func orUnderscore(s string) string {
	if s == "" {
		return "_"
	}
	return s
}
