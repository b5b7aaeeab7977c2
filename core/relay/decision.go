package relay

// Decision records which branch terminated an event.
type Decision interface {
	Kind() string
}

// DecisionIgnored: no text, or text matching neither form.
type DecisionIgnored struct{}

// DecisionCommand: the text was handed to the command router.
type DecisionCommand struct {
	Verb string
	Args string
}

// DecisionMaintenance: rejected because maintenance mode is on.
type DecisionMaintenance struct{}

// DecisionNoCredential: the credential pool is empty.
type DecisionNoCredential struct{}

// DecisionUsage: a form matched but carried no text.
type DecisionUsage struct {
	Form Form
}

// DecisionTooLong: the text exceeds the length limit.
type DecisionTooLong struct {
	Length int
	Limit  int
}

// DecisionSpeech: synthesis was attempted.
type DecisionSpeech struct {
	Text           string
	VoiceID        string
	DeleteOriginal bool
	Announce       bool
}

// DecisionFailed: the event hit an unexpected failure and got the generic notice.
type DecisionFailed struct{}

func (DecisionIgnored) Kind() string      { return "ignored" }
func (DecisionCommand) Kind() string      { return "command" }
func (DecisionMaintenance) Kind() string  { return "maintenance" }
func (DecisionNoCredential) Kind() string { return "no_credential" }
func (DecisionUsage) Kind() string        { return "usage" }
func (DecisionTooLong) Kind() string      { return "too_long" }
func (DecisionSpeech) Kind() string       { return "speech" }
func (DecisionFailed) Kind() string       { return "failed" }
