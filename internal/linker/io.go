package linker

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

func WriteProposal(w io.Writer, p *Proposal) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// ReadProposal decodes and validates a proposal.
func ReadProposal(r io.Reader) (*Proposal, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p Proposal
	if err := dec.Decode(&p); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, err, "decode proposal")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func SaveProposal(path string, p *Proposal) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create proposal file: %w", err)
	}
	if err := WriteProposal(f, p); err != nil {
		f.Close()
		return fmt.Errorf("write proposal: %w", err)
	}
	return f.Close()
}

func LoadProposal(path string) (*Proposal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, err, "open proposal")
	}
	defer f.Close()
	return ReadProposal(f)
}
