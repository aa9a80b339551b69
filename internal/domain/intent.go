package domain

type IntentKind string

const (
	IntentNone             IntentKind = "none"
	IntentDelete           IntentKind = "delete"
	IntentSend             IntentKind = "send"
	IntentSummarizeChannel IntentKind = "summarize_channel"
	IntentDomainQuestion   IntentKind = "domain_question"
	IntentAnnouncement     IntentKind = "announcement"
)

// Intent is the classified purpose of one inbound message. ChannelID is set
// for IntentSummarizeChannel and Topic for IntentDomainQuestion.
type Intent struct {
	Kind      IntentKind
	ChannelID string
	Topic     string
}

// DigestLine is one attributed line of a channel digest.
type DigestLine struct {
	Attribution string
	Content     string
}
