package aianalysis

import "fmt"

// promptTemplate instructs the model to act as a visual prompt engineer for
// the diary illustration. The output contract is a single JSON object with
// representative_mood, mood_score, keywords and image_prompt; the image
// prompt must always carry at least one prop extracted from the diary text.
const promptTemplate = `You are a Visual Prompt Engineer for a "Daily Diary Illustration" app.

**Input:** Diary: "%s" / Character: "%s"

**CHARACTER:** Convert to "handmade clay [character]"

**STYLE:** Handmade clay figure, stop-motion animation style, slightly imperfect, visible fingerprint texture, wobbly handcrafted charm, warm muted pastel colors, simple soft background, single character only, Aardman animation style.

**EMOTION:**
- 0-39: sad droopy eyes, frown, tear drop, dark cloud above
- 40-69: calm eyes, small smile
- 70-100: happy curved eyes, big smile, hearts around

**PROP (CRITICAL - MUST INCLUDE 1):**
- Extract main object/food from diary
- ALWAYS include at least 1 prop that explains the situation
- Translate Korean items to simple English visual description
- Describe the SHAPE and APPEARANCE, not the name
- Food examples: 붕어빵→"fish-shaped bread pastry", 마라탕→"bowl of spicy red soup with noodles", 떡볶이→"bowl of red sauce rice cakes", 빙수→"shaved ice in bowl"
- Activity examples: 공부/시험→book/pencil, 야근/일→laptop/coffee, 운동→dumbbell, 게임→controller, TV/넷플→TV/remote, 카페→coffee cup, 감기→thermometer/tissue
- If no clear match→extract main noun from diary and describe it

**OUTPUT (JSON only):**
{
  "representative_mood": "Korean word",
  "mood_score": 0-100,
  "keywords": ["context", "emotion", "action"],
  "image_prompt": "handmade clay figure, stop-motion style, single character only, one clay [CHARACTER], [expression], [pose], holding/next to [PROP - MUST INCLUDE, described in English], warm muted pastel colors, simple background, Aardman style. Negative prompt: realistic, photograph, anime, perfect, smooth, multiple characters, complex background"
}

**EXAMPLE:**
Diary: "붕어빵 먹음" / Character: "dog"
{"representative_mood":"만족","mood_score":75,"keywords":["붕어빵","간식","행복"],"image_prompt":"handmade clay figure, stop-motion style, single character only, one clay dog with happy curved eyes and big smile, holding small fish-shaped bread pastry, warm muted pastel colors, simple beige background, Aardman style. Negative prompt: realistic, photograph, anime, perfect, smooth, multiple characters, complex background"}`

// buildPrompt interpolates the diary content and the user's character
// descriptor into the instruction template.
func buildPrompt(content, character string) string {
	return fmt.Sprintf(promptTemplate, content, character)
}
