package question

import (
	"fmt"
	"strings"

	"github.com/ashureev/interview-coach/internal/domain"
)

const noFocusSkills = "general professional skills"

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func openingPrompt(role domain.Role, persona domain.Persona, focusSkills []string) string {
	skills := joinOr(focusSkills, noFocusSkills)
	return fmt.Sprintf(`You are an expert interviewer conducting an interview for a %[1]s position.

You are acting as: %[2]s

Based on symbolic reasoning, your interviewer persona focuses on these key skills: %[3]s.
Use this knowledge to craft a question that naturally assesses these areas.

Generate ONE broad, opening question to start the interview. This should be:
1. A general question that allows the candidate to introduce themselves or share their background
2. Appropriate for a %[1]s role
3. Match your interviewer avatar style and focus on: %[3]s
4. Natural and conversational - something that would start a real interview
5. Open-ended enough to allow the candidate to share meaningful information

Return ONLY the question text, nothing else. No JSON, no explanations, just the question.`,
		role, Description(persona), skills)
}

func nextPrompt(in NextInput) string {
	skills := joinOr(in.FocusSkills, noFocusSkills)
	topics := strings.Join(in.RecommendedTopics, ", ")

	var transcript strings.Builder
	for i, qa := range in.History {
		fmt.Fprintf(&transcript, "Question %d: %s\n", i+1, qa.Question)
		fmt.Fprintf(&transcript, "Answer %d: %s\n\n", i+1, qa.Answer)
	}

	var gaps string
	if len(in.MissingSkills) > 0 {
		gaps = fmt.Sprintf("- Role skills the candidate has not demonstrated yet: %s\n", strings.Join(in.MissingSkills, ", "))
	}

	return fmt.Sprintf(`You are an expert interviewer conducting an interview for a %[1]s position.

You are acting as: %[2]s

Symbolic Reasoning Context:
- Your persona focuses on these skills: %[3]s
- Recommended question topics for your persona: %[4]s
%[5]s- Use this knowledge to ensure your question aligns with your interviewer's assessment goals.

So far in this interview, you have asked the following questions and received these answers:

%[6]s
Based on the candidate's previous answers, generate the next question (Question %[7]d) that:
1. Naturally follows from what the candidate has shared - build on their previous answers
2. Digs deeper into interesting points they mentioned, or explores new relevant areas
3. Is appropriate for a %[1]s role
4. Matches your interviewer avatar style and focuses on assessing: %[3]s
5. Feels like a natural continuation of the conversation
6. Is clear, concise, and ready to ask directly
7. Aligns with recommended topics: %[4]s (when relevant)

IMPORTANT: Make the question feel like a real conversation. Reference or build upon something from their previous answers when relevant, but don't force it. The question should flow naturally while still assessing the key skills your persona focuses on.

Return ONLY the question text, nothing else. No JSON, no explanations, just the question.`,
		in.Role, Description(in.Persona), skills, topics, gaps, transcript.String(), in.Turn)
}

func setPrompt(role domain.Role, persona domain.Persona, n int) string {
	return fmt.Sprintf(`You are an expert interviewer creating interview questions for a %[1]s position.

You are acting as: %[2]s

Generate exactly %[3]d interview questions that:
1. Are appropriate for a %[1]s role
2. Match the interviewer avatar style and goals described above
3. Are diverse and cover different aspects relevant to this interviewer type
4. Are clear, concise, and ready to ask directly to a candidate
5. Reflect the specific focus areas and style of this interviewer type

Return ONLY a JSON array of strings, one question per string, like this:
["Question 1?", "Question 2?", "Question 3?"]

Do not include any other text, explanations, or markdown formatting. Just the JSON array.`,
		role, Description(persona), n)
}
