package interview

import (
	"fmt"

	"github.com/ashureev/interview-coach/internal/domain"
)

const (
	helpText = "You can answer questions normally, or use:\n" +
		"– 'restart' to start again\n" +
		"– 'stop' to end the interview\n" +
		"– 'help' to see this message again."

	stoppedText    = "Interview stopped. Type 'restart' to start a new one."
	finishedText   = "This interview session is finished.\nType 'restart' to begin a new interview."
	completeText   = "Thanks for completing the interview! Generating your final report..."
	apologyText    = "Sorry, I encountered an error processing your message. Please try again or type 'restart' to start over."
	nudgeText      = "I didn't catch an answer there. Take your time and reply to the question above, or type 'help' for commands."
	fallbackPrompt = "Tell me about yourself."
)

// Command words recognised in every state.
const (
	cmdHelp    = "help"
	cmdStop    = "stop"
	cmdRestart = "restart"
)

var greetingWords = []string{"hello", "hi", "hey", "greetings", "good morning", "good afternoon", "good evening"}

func personaMenu() string {
	var s string
	for _, p := range domain.Personas {
		s += string(p) + "\n"
	}
	return s
}

func welcomeText(role domain.Role) string {
	return "Hi, I'm your AI interview coach.\n\n" +
		fmt.Sprintf("We'll run a short mock interview for a %s role and then give you detailed feedback on each answer.\n\n", role) +
		"Choose an interviewer avatar:\n\n" +
		personaMenu() + "\n" +
		"Type your choice, or help for commands."
}

func restartText(role domain.Role) string {
	return "Interview restarted.\n\n" + welcomeText(role)
}

func greetingMenuText(role domain.Role) string {
	return "Hi! I'm your AI interview coach.\n\n" +
		fmt.Sprintf("We'll run a short mock interview for a %s role and then give you detailed feedback on each answer.\n\n", role) +
		"Choose an interviewer avatar:\n\n" +
		personaMenu() + "\n" +
		"Type your choice, or 'help' for commands."
}

func noiseMenuText() string {
	return "Hi! I'm your AI interview coach.\n\n" +
		"Please choose an interviewer avatar to begin:\n\n" +
		personaMenu() + "\n" +
		"Or type 'restart' to start over, or 'help' for commands."
}

func introText(p domain.Persona, n int) string {
	var body string
	switch p {
	case domain.PersonaHR:
		body = "You selected HR.\n\n" +
			"I'll focus on culture fit, communication, and basic role alignment. I'll assess your soft skills, teamwork, and professionalism."
	case domain.PersonaJuniorDeveloper:
		body = "You selected the Junior Developer interviewer.\n\n" +
			"I'm relatively early in my career too, so I understand the practical realities of junior work. I'll test your basic technical understanding and see how you collaborate and explain ideas."
	case domain.PersonaSeniorDeveloper:
		body = "You selected the Senior Developer / Tech Lead interviewer.\n\n" +
			"I'm deeply technical and responsible for system quality. I'll assess your technical knowledge depth, design thinking, and how you handle trade-offs and edge cases."
	case domain.PersonaCorporateExecutive:
		body = "You selected the Corporate Executive interviewer.\n\n" +
			"I care about the big picture: business impact, risk, and long-term value. I'll gauge your leadership potential, judgement, and how you contribute to business goals."
	default:
		return fmt.Sprintf("You selected the %s interviewer. Let's begin your mock interview.", p)
	}
	return body + "\n\n" +
		fmt.Sprintf("We'll do %d questions and then I'll give you a summary of your performance.\n\n", n) +
		"Let's begin..."
}
