package describe

// descriptionPrompt asks for a short factual caption of the image.
const descriptionPrompt = `Your task is to write a short, objective description of the image (1-2 sentences).

Rules:
1. Describe only facts: who/what is shown, what they are doing, where they are.
2. Start directly with the description. No greetings or phrases like "In this photo...".
3. Do not analyze mood, emotions or atmosphere.
4. Ignore any logos or watermarks.

Examples of correct answers:
- People resting on a sandy beach by the sea.
- A corgi dog lying on green grass.
- Two people in camouflage exchanging fire on a city street.`

// tagPrompt asks for a comma-separated tag list.
const tagPrompt = `Your task is to generate a list of tags for the image.

Rules:
1. Tags must be nouns or short phrases naming the key objects, actions or concepts in the image.
2. Separate tags with commas.
3. Do not use sentences.
4. Ignore any logos or watermarks.

Examples of correct answers:
- person, dog, park, walk
- city, night, lights, buildings, street
- food, plate, vegetables, dinner`

// structuredPrompt asks for a fixed-shape JSON description.
const structuredPrompt = `Your task is to extract structured information from the image and return it as JSON.

Rules:
1. Analyze the image and fill in values for these keys: "main_subject", "action", "setting", "secondary_objects", "composition".
2. The answer must be strictly JSON. Do not add any explanation before or after the JSON object.
3. Describe only objective facts.
4. Ignore any logos or watermarks.

Keys to fill:
- main_subject: who or what is the main subject of the image?
- action: what is the main action? (use "static" when there is none)
- setting: where does the scene take place (surroundings, background)?
- secondary_objects: notable secondary objects, as a single string
- composition: short description of the composition (close-up, panorama, portrait, top view)

Example of a correct answer:
{
  "main_subject": "A corgi dog",
  "action": "lying down",
  "setting": "green grass in a park",
  "secondary_objects": "trees in the background, a yellow ball",
  "composition": "close-up"
}`
