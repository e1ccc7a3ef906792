package domain

// ClaimInput is one claim to verify.
type ClaimInput struct {
	// RunID groups claims from one model output.
	RunID string `json:"run_id,omitempty"`

	// QueryText is the user query the claim answers.
	QueryText string `json:"query_text,omitempty"`

	// Text is the claim.
	Text string `json:"text"`

	// CitedIDs are the retrieval IDs the claim attributes itself to.
	CitedIDs []string `json:"cited_ids"`
}

// Verification is the verdict on one claim.
type Verification struct {
	// Claim is the verified claim.
	Claim ClaimInput

	// Score is the support score in [0, 1].
	Score float64

	// Decision is the verdict for the claim as a whole.
	Decision Decision

	// Citations are the records appended for each cited chunk.
	Citations []Citation
}

// AcceptedClaim converts the verification into a session claim.
func (v *Verification) AcceptedClaim() Claim {
	ids := make([]string, 0, len(v.Citations))
	for _, c := range v.Citations {
		ids = append(ids, c.ChunkID)
	}
	return Claim{Text: v.Claim.Text, CitationIDs: ids, Decision: v.Decision, Score: v.Score}
}

// RunVerification is the verdict on all claims of one model output.
type RunVerification struct {
	RunID    string
	Decision Decision
	Claims   []Verification
}

// SessionUpdate is merged into a live session.
type SessionUpdate struct {
	// UserID sets the session owner on creation.
	UserID string

	// Summary replaces the condensed summary when non-empty.
	Summary string

	// Claims are appended to the accepted claims.
	Claims []Claim

	// Citations are merged into the bounded top citations.
	Citations []Citation
}
