package domain

// Voicemail is the metadata of one voicemail, keyed by the call log row id it
// belongs to.
type Voicemail struct {
	CallID        int64  `bson:"call_id" json:"call_id"`
	URI           string `bson:"uri" json:"uri"`
	Transcription string `bson:"transcription" json:"transcription"`
	IsRead        bool   `bson:"is_read" json:"is_read"`
	ModifiedAt    int64  `bson:"modified_at" json:"modified_at"`
}

// SpamStatus is the spam verdict for one number.
type SpamStatus struct {
	IsSpam    bool `json:"is_spam"`
	IsBlocked bool `json:"is_blocked"`
}
