// Package transcription sends captured clips to the Gemini generateContent
// API and turns the reply into text. Each request carries an optional
// vocabulary hint, the instruction for the selected mode and the WAV clip
// inline. Failures are classified into a small set of kinds so callers can
// show a useful message.
package transcription
