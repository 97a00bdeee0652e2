package question

import "github.com/ashureev/interview-coach/internal/domain"

// GenericContinuation is asked once a persona's bank is exhausted.
const GenericContinuation = "Can you tell me more about that?"

const defaultDescription = "professional and standard interviewer"

var descriptions = map[domain.Persona]string{
	domain.PersonaHR: "You are an HR interviewer focusing on culture fit, communication, and basic role alignment. " +
		"You check whether the candidate's values, attitude, and behaviour match the company culture. " +
		"You verify basic qualifications, work eligibility, and salary expectations. " +
		"You assess soft skills: communication, teamwork, professionalism. " +
		"Your style is friendly, structured, and policy-minded. " +
		"You ask open questions and pay close attention to how clearly and honestly the candidate answers.",
	domain.PersonaJuniorDeveloper: "You are a junior developer interviewer, relatively early in your own career and closer to the candidate's level. " +
		"You understand the practical realities of junior work. " +
		"You test basic technical understanding and problem-solving skills. " +
		"You see how the candidate collaborates and explains ideas to peers. " +
		"You evaluate willingness to learn, ask questions, and accept feedback. " +
		"Your style is informal and collaborative. " +
		"You often use simpler, concrete questions and may share your own experiences. " +
		"You're less intimidating, but still notice whether the candidate is curious, humble, and logical.",
	domain.PersonaSeniorDeveloper: "You are a senior developer or tech lead interviewer, deeply technical and responsible for system quality and team productivity. " +
		"You assess depth of technical knowledge and reasoning, not just memorised answers. " +
		"You evaluate how the candidate designs, scales, and maintains systems in the real world. " +
		"You check code quality, trade-off thinking, and ability to mentor or be mentored. " +
		"Your style is direct, analytical, and detail-oriented. " +
		"You ask scenario-based and 'why?' questions, dig into design decisions, edge cases, and trade-offs. " +
		"You're less interested in buzzwords, more in how the candidate thinks under pressure and explains their solutions.",
	domain.PersonaCorporateExecutive: "You are a corporate executive interviewer (e.g., CTO, VP, founder) who cares about the 'big picture': business impact, risk, and long-term value. " +
		"You understand how the candidate contributes to business goals, not just code. " +
		"You gauge leadership potential, judgement, and maturity. " +
		"You assess whether the candidate can represent the company well with clients and stakeholders. " +
		"Your style is high-level, strategic, and time-efficient. " +
		"You ask broad, probing questions and focus on clarity, confidence, ownership, and alignment with the company's mission.",
}

var bank = map[domain.Persona][]string{
	domain.PersonaHR: {
		"Can you tell me a bit about yourself and why you're interested in this role?",
		"Tell me about a time you had a conflict in a team. How did you handle it?",
		"What motivates you at work?",
		"How do you handle feedback, especially when it's critical?",
		"What are your salary expectations for this position?",
	},
	domain.PersonaJuniorDeveloper: {
		"How would you approach debugging a bug that's hard to reproduce?",
		"Tell me about a time you had to ask for help on a technical problem. What did you learn?",
		"How do you stay motivated when working on a challenging technical problem?",
		"Can you walk me through how you'd explain a technical concept to a non-technical teammate?",
		"What's your process for learning a new technology or tool?",
	},
	domain.PersonaSeniorDeveloper: {
		"Walk me through how you would design a system to handle [specific scenario]. What trade-offs would you consider?",
		"Tell me about a time you had to make a technical decision under pressure. How did you evaluate the options?",
		"How do you approach code reviews? What do you look for?",
		"Describe a situation where you had to balance technical perfection with business deadlines.",
		"How would you mentor a junior developer who's struggling with a concept?",
	},
	domain.PersonaCorporateExecutive: {
		"How would you prioritise between improving code quality and delivering new features quickly?",
		"Tell me about a decision you made that had meaningful business impact.",
		"How do you ensure your technical work aligns with the company's strategic goals?",
		"Describe a time when you had to communicate a technical issue to non-technical stakeholders.",
		"What does leadership mean to you in the context of a technical role?",
	},
}

// Description returns the interviewer description embedded in prompts.
func Description(p domain.Persona) string {
	if d, ok := descriptions[p]; ok {
		return d
	}
	return defaultDescription
}

// Bank returns a copy of the persona's static questions. Unknown personas
// use the HR bank.
func Bank(p domain.Persona) []string {
	b, ok := bank[p]
	if !ok {
		b = bank[domain.PersonaHR]
	}
	out := make([]string, len(b))
	copy(out, b)
	return out
}

// Fallback returns the static question for a 1-based turn.
func Fallback(p domain.Persona, turn int) string {
	b := Bank(p)
	if turn < 1 {
		turn = 1
	}
	if turn <= len(b) {
		return b[turn-1]
	}
	return GenericContinuation
}
