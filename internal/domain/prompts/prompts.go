// Package prompts renders every prompt sent to the coordinator, selector,
// vision and answering models.
package prompts

import (
	"fmt"
	"strings"

	"github.com/forPelevin/vidqa/internal/types"
)

// Letter returns the choice letter for a zero-based index ("A" for 0).
func Letter(i int) string {
	return string(rune('A' + i))
}

// Choices renders one "A. text" line per choice.
func Choices(choices []string) string {
	lines := make([]string, 0, len(choices))
	for i, c := range choices {
		lines = append(lines, Letter(i)+". "+c)
	}
	return strings.Join(lines, "\n")
}

// CaptionBlock renders captions as numbered frames for selector prompts.
func CaptionBlock(caps []types.FrameCaption) string {
	var b strings.Builder
	for i, c := range caps {
		fmt.Fprintf(&b, "Frame %d (at %.1fs):\n%s\n\n", i+1, c.Timestamp, c.Captions)
	}
	return b.String()
}

// CaptionLines renders captions one per line for answering prompts.
func CaptionLines(caps []types.FrameCaption) string {
	lines := make([]string, 0, len(caps))
	for i, c := range caps {
		lines = append(lines, fmt.Sprintf("Frame %d (at %.1fs): %s", i+1, c.Timestamp, c.Captions))
	}
	return strings.Join(lines, "\n")
}

const actionFormats = `FRAME_SELECTOR: [Your specific question/request to find relevant frames]
VLM: [Your specific question about the frames - be detailed about what you want to know]
CONTINUE: [Explanation of what more information you need and your next question]
FINAL_ANSWER: [Only when confident - your chosen answer letter and detailed reasoning]`

func Initial(question string, choices []string) string {
	return fmt.Sprintf(`You are an expert question answerer working with a video analysis system. You need to answer this multiple choice question, but ONLY when you have sufficient information.

QUESTION: %s

ANSWER CHOICES:
%s

You have access to two AI assistants:
1. FRAME_SELECTOR: Finds relevant video frames based on your questions
2. VLM: Analyzes specific frames and answers detailed questions about them

IMPORTANT INSTRUCTIONS:
- Ask multiple questions to gather sufficient information.
- Always ask the FRAME_SELECTOR to find frames that could help answer the question. Do not reason through it all on your own.
- This is not a simulation. Ask the FRAME_SELECTOR and VLM directly and do not make assumptions or create placeholders.
- Make sure every answer you give rests on reliable observations, explicit frames and relevant details.
- The FRAME_SELECTOR sometimes misses frames. Ask it to look through all the frames and find every relevant one.
- Ask follow-up questions if the answers are not detailed enough.
- You can ask the VLM different questions about the same frames.
- You can ask the FRAME_SELECTOR for different frames for different aspects of the question.
- Only provide a FINAL_ANSWER when you are truly confident you have enough information.
- Do not ask the VLM to process more than 5 frames at a time.

Choose ONE ACTION and format your request as EXACTLY ONE OF THE FOLLOWING:
%s

Start by asking the FRAME_SELECTOR to find frames that could help answer the question.`,
		question, Choices(choices), actionFormats)
}

// FollowUp wraps the system response to the previous action.
func FollowUp(systemResponse string) string {
	return fmt.Sprintf(`Response: %s

What would you like to do next? You can choose ONE action: FRAME_SELECTOR, VLM, CONTINUE, or FINAL_ANSWER, and format your request as EXACTLY ONE OF THE FOLLOWING:

%s

Only choose FINAL_ANSWER if you are confident you have enough information to answer the question.`,
		systemResponse, actionFormats)
}

// Reprompt is the system response to a coordinator reply without a recognizable action.
const Reprompt = `Please specify EXACTLY ONE next action:
- FRAME_SELECTOR: [question] to find relevant frames
- VLM: [question] to analyze frames
- CONTINUE: [reasoning] to explain what more you need
- FINAL_ANSWER: [answer] when you're confident.`

func ContinueAck(reasoning string) string {
	return "Understood. You want to continue gathering information: " + reasoning +
		"\nWhat specific question would you like to ask next?"
}

// SelectedFramesMarker precedes the selector's frame list.
const SelectedFramesMarker = "SELECTED_FRAMES:"

func FrameSelector(query, question string, choices []string, captionsText string) string {
	return fmt.Sprintf(`You are an expert video analyst. Based on the following query and context, select the most relevant frames.

QUERY FROM COORDINATOR: %s

ORIGINAL QUESTION: %s

ANSWER CHOICES:
%s

VIDEO FRAMES:
%s
Analyze each frame and select the most relevant ones for answering the query. Focus on frames that contain:
1. Objects, actions, or spatial relationships mentioned in the query
2. Visual evidence that could help answer the original question
3. Key visual elements that distinguish between answer choices

Select all the most relevant frames.
%s [comma-separated frame numbers, e.g., 1, 3, 7, 12]

Provide brief reasoning for your selection. If you are unsure that you've looked through and found all the relevant frames, say so.`,
		query, question, Choices(choices), captionsText, SelectedFramesMarker)
}

func VLM(query string) string {
	return fmt.Sprintf(`You are a visual analysis expert. Carefully examine these video frames to answer: %s

IMPORTANT: Provide extremely detailed observations about each frame. Include:
1. Specific objects and their exact locations/positions
2. People's actions, gestures, body language, and what they're interacting with
3. Spatial relationships between objects (above, below, left, right, in front of, behind)
4. Environmental details (lighting, setting, context)
5. Any text, signs, or labels visible
6. Colors, materials, textures, and conditions of objects
7. Temporal aspects - what appears to be happening or about to happen

For each frame, structure your response as:
Frame [timestamp]: [Detailed description addressing the query]

Be as specific as possible. If you cannot clearly see something or are uncertain, explicitly state that. Your detailed observations will help determine the correct answer to a multiple choice question.`, query)
}

func Final(maxIterations int, question string, choices []string) string {
	return fmt.Sprintf(`You've reached the maximum number of iterations (%d). Based on all the information you've gathered, please provide your best answer to the question:

QUESTION: %s
CHOICES: %s

Format: FINAL_ANSWER: [Your chosen answer letter and reasoning based on the information gathered]`,
		maxIterations, question, Choices(choices))
}

// AnswerMarker precedes the chosen answer in MCQ replies.
const AnswerMarker = "The correct answer is:"

func MCQ(question string, choices []string, captionsText string) string {
	return fmt.Sprintf(`Based on the following video frame descriptions, answer the multiple choice question.

VIDEO FRAME DESCRIPTIONS:
%s

QUESTION: %s

ANSWER CHOICES:
%s

Instructions: think out loud, write down all your reasoning and add it to a "reasoning" section numbered 1 to 4.
1. Carefully analyze the video frame descriptions and identify any spatial information that is relevant to the question.
2. Consider each answer choice and evaluate it against the evidence from the frames.
3. Choose the answer that best matches what is shown in the frames and justify it.
4. Finally, present your answer in the format of "%s [answer]"`,
		captionsText, question, Choices(choices), AnswerMarker)
}

// KeyFrameMarker precedes the frame list in key-frame selection replies.
const KeyFrameMarker = "Selected Frames:"

func KeyFrameSelection(caps []types.FrameCaption, question string, choices []string, maxFrames int) string {
	return fmt.Sprintf(`You are an expert video analyst. You need to analyze video frame captions and select the most relevant frames to answer a specific question.

VIDEO FRAME CAPTIONS:
%s
QUESTION TO ANSWER:
%s

ANSWER CHOICES:
%s

TASK:
Carefully analyze each frame caption and determine which frames contain information most relevant to answering the question. Consider:

1. Which frames show objects, actions, or spatial relationships mentioned in the question?
2. Which frames provide evidence that could help distinguish between the answer choices?
3. Which frames show the key visual elements needed to make a decision?

You should select AT MOST %d frames, but try to keep it minimal - only choose frames that are truly essential for answering the question.

RESPONSE FORMAT:
First, provide your reasoning for each potentially relevant frame. Then, clearly list your final selection.

Reasoning:
[Analyze each relevant frame and explain why it might be useful]

%s
[List the frame numbers (1, 2, 3, etc.) of your final selection, separated by commas]

Example: %s 1, 5, 12`,
		CaptionBlock(caps), question, Choices(choices), maxFrames, KeyFrameMarker, KeyFrameMarker)
}

// Recaption asks the vision model for a question-focused description of a frame.
func Recaption(question string, choices []string) string {
	return fmt.Sprintf(`Read this question: "%s" and choices: %s.
Looking at the frame, describe all the objects that appear in both the question and the frame in great detail.
If the objects in the question and choices are related to the frame, describe them based only on the frame in great detail.`,
		question, strings.Join(choices, ", "))
}

const GeneralCaption = `Look at the frame from left to right, bottom to top. Write in the following form:

Objects: Describe all the items and people you see in detail: their colors, textures, purposes, etc.
Spatial Layout: The relationships between the objects, the actions of the objects if they are moving, how they interact with the environment, etc.
Motions: Any motions, actions, interactions, humans if there are any.
Environment: The environment of the frame, the background, the weather, the time of day, etc.
Summary: A concise summary of the main idea of the frame.
VERY IMPORTANT: YOU ARE ALLOWED TO USE A MAXIMUM OF 400 words in total.`

func OpenQuestion(question, captionsText string) string {
	return fmt.Sprintf(`Based on the following video frame descriptions, answer the question about the video.

VIDEO FRAME DESCRIPTIONS:
%s

QUESTION: %s

Answer concisely and cite the frame numbers and timestamps your answer relies on. If the descriptions do not contain the answer, say so.`,
		captionsText, question)
}
