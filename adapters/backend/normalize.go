package backend

import (
	"fmt"
	"regexp"

	"github.com/bytedance/sonic"

	"github.com/orbytt/voicedesk/domain"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Normalize decodes an assistant backend response. The backend has answered
// in three shapes over time:
//
//	{"final_response_to_user": "...", "current_agent_name": "...", ...}
//	{"output": {"final_response_to_user" | "response": "...", ...}}
//	{"output": "..."}
func Normalize(body []byte) (domain.AssistantReply, error) {
	var payload map[string]interface{}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to decode assistant response: %w", err)
	}

	if final := stringField(payload, "final_response_to_user"); final != "" {
		return structuredReply(payload, final), nil
	}

	if output, ok := payload["output"].(map[string]interface{}); ok {
		text := stringField(output, "final_response_to_user")
		if text == "" {
			text = stringField(output, "response")
		}
		return structuredReply(output, text), nil
	}

	output, _ := payload["output"].(string)
	return domain.AssistantReply{
		Output:    output,
		AgentName: domain.DefaultAgentName,
		AgentType: domain.DefaultAgentType,
		VoiceText: htmlTag.ReplaceAllString(output, ""),
	}, nil
}

func structuredReply(fields map[string]interface{}, text string) domain.AssistantReply {
	reply := domain.AssistantReply{
		Output:    text,
		AgentName: stringField(fields, "current_agent_name"),
		AgentType: stringField(fields, "current_agent_type"),
		VoiceText: stringField(fields, "summarized_response"),
	}
	if reply.AgentName == "" {
		reply.AgentName = domain.DefaultAgentName
	}
	if reply.AgentType == "" {
		reply.AgentType = domain.DefaultAgentType
	}

	if images, ok := fields["display_images"].([]interface{}); ok {
		for _, image := range images {
			if s, ok := image.(string); ok && s != "" {
				reply.DisplayImages = append(reply.DisplayImages, s)
			}
		}
	}
	return reply
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}
