package publisher

import "fmt"

// TopicIdentity names the single topic a Client publishes to.
type TopicIdentity struct {
	ProjectID string
	Topic     string
}

// NewTopicIdentity validates projectID and topic. Both must be non-empty.
func NewTopicIdentity(projectID, topic string) (TopicIdentity, error) {
	if projectID == "" {
		return TopicIdentity{}, fmt.Errorf("%w: project ID must not be empty", ErrInvalidArgument)
	}
	if topic == "" {
		return TopicIdentity{}, fmt.Errorf("%w: topic must not be empty", ErrInvalidArgument)
	}
	return TopicIdentity{ProjectID: projectID, Topic: topic}, nil
}

// Name returns the canonical resource name, projects/<project>/topics/<topic>.
func (id TopicIdentity) Name() string {
	return fmt.Sprintf("projects/%s/topics/%s", id.ProjectID, id.Topic)
}

func (id TopicIdentity) String() string {
	return id.Name()
}
