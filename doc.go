// Package quizgate is an LLM gateway for Korean quiz-game bots.
//
// It fronts the Google Gemini API with an injection guard, a heuristic
// Korean morphological analyzer, session history management, token usage
// accounting and two game pipelines (twenty questions and lateral-thinking
// puzzles). The root package holds the shared vocabulary: chat messages,
// content blocks, stream events, token usage and the typed error taxonomy
// the HTTP layer serializes.
//
// Concern packages build on the root types: guard, nlp, toon, prompt,
// provider/gemini, session, usage, health, twentyq, turtlesoup and server.
// The binary lives in cmd/quizgate.
package quizgate
