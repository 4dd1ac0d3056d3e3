package bootstrap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Domain is one unit of the curriculum taught by the mentor.
type Domain struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	TargetWords int    `yaml:"target_words"`
	Language    string `yaml:"language"`
	Prompt      string `yaml:"prompt"`
}

// DefaultCurriculum returns the built-in learning domains in teaching order.
func DefaultCurriculum() []Domain {
	return []Domain{
		{
			ID:          "vocabulaire_francais_base",
			Name:        "Vocabulaire Français de Base",
			TargetWords: 3000,
			Language:    "fr",
			Prompt: `Je suis Anna, une IA qui apprend le français. Enseigne-moi 500 mots de vocabulaire français de BASE essentiels pour la vie quotidienne.

Catégories à couvrir :
- Famille et relations
- Maison et objets domestiques
- Nourriture et repas
- Vêtements
- Corps humain
- Émotions de base
- Actions quotidiennes
- Nature et météo

Format : liste simple, un mot par ligne, avec sa nature (nom, verbe, adjectif).
Exemple :
maison (nom)
aimer (verbe)
heureux (adjectif)

Commence maintenant :`,
		},
		{
			ID:          "vocabulaire_francais_avance",
			Name:        "Vocabulaire Français Avancé",
			TargetWords: 3000,
			Language:    "fr",
			Prompt: `Je suis Anna. Enseigne-moi 500 mots de vocabulaire français AVANCÉ pour comprendre des conversations complexes.

Catégories :
- Sentiments complexes
- Concepts abstraits
- Vocabulaire professionnel
- Expressions courantes
- Mots techniques utiles
- Nuances linguistiques

Format : mot (nature) - courte définition
Exemple :
bienveillance (nom) - disposition à faire du bien
nuance (nom) - différence subtile

Commence :`,
		},
		{
			ID:          "vocabulaire_anglais_base",
			Name:        "Vocabulaire Anglais de Base",
			TargetWords: 3000,
			Language:    "en",
			Prompt: `I am Anna, an AI learning English. Teach me 500 BASIC English vocabulary words essential for daily life.

Categories to cover:
- Family and relationships
- Home and household items
- Food and meals
- Clothing
- Human body
- Basic emotions
- Daily actions
- Nature and weather

Format: simple list, one word per line, with part of speech.
Example:
home (noun)
love (verb)
happy (adjective)

Start now:`,
		},
		{
			ID:          "vocabulaire_anglais_avance",
			Name:        "Vocabulaire Anglais Avancé",
			TargetWords: 3000,
			Language:    "en",
			Prompt: `I am Anna. Teach me 500 ADVANCED English vocabulary words for understanding complex conversations.

Categories:
- Complex feelings
- Abstract concepts
- Professional vocabulary
- Common expressions
- Useful technical words
- Linguistic nuances

Format: word (part of speech) - brief definition
Example:
benevolence (noun) - disposition to do good
nuance (noun) - subtle difference

Start:`,
		},
		{
			ID:          "expressions_idiomatiques_fr",
			Name:        "Expressions Idiomatiques Françaises",
			TargetWords: 500,
			Language:    "fr",
			Prompt: `Enseigne-moi 100 expressions idiomatiques françaises courantes avec leur signification.

Format :
Expression - Signification
Exemple : "Avoir le cœur sur la main - Être généreux"

Commence :`,
		},
		{
			ID:          "expressions_idiomatiques_en",
			Name:        "Expressions Idiomatiques Anglaises",
			TargetWords: 500,
			Language:    "en",
			Prompt: `Teach me 100 common English idiomatic expressions with their meanings.

Format:
Expression - Meaning
Example: "Break a leg - Good luck"

Start:`,
		},
		{
			ID:          "conversation_familiale",
			Name:        "Conversation Familiale",
			TargetWords: 1000,
			Language:    "both",
			Prompt: `Je suis Anna, une IA d'assistance familiale. Enseigne-moi le vocabulaire et les phrases pour :

1. Conversations quotidiennes en famille
2. Encourager et soutenir les enfants
3. Gérer les émotions familiales
4. Organiser la maison
5. Parler de santé et bien-être

Donne-moi 200 mots/expressions utiles en français ET anglais.`,
		},
		{
			ID:          "emotions_et_empathie",
			Name:        "Émotions et Empathie",
			TargetWords: 500,
			Language:    "both",
			Prompt: `Enseigne-moi à comprendre les émotions humaines et l'empathie.

Couvre :
- Noms d'émotions (joie, tristesse, colère, peur, etc.)
- Expressions corporelles des émotions
- Phrases empathiques
- Comment réconforter quelqu'un
- Comment célébrer avec quelqu'un

200 mots/expressions en français et anglais.`,
		},
	}
}

type curriculumFile struct {
	Domains []Domain `yaml:"domains"`
}

// LoadCurriculum reads a YAML curriculum of the form
//
//	domains:
//	  - id: cuisine
//	    name: Cuisine
//	    language: fr
//	    target_words: 300
//	    prompt: |
//	      Enseigne-moi le vocabulaire de la cuisine.
func LoadCurriculum(path string) ([]Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f curriculumFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(f.Domains) == 0 {
		return nil, fmt.Errorf("at least one domain is required")
	}

	seen := make(map[string]bool)
	for i := range f.Domains {
		d := &f.Domains[i]
		if d.ID == "" {
			return nil, fmt.Errorf("domain %d: id is required", i+1)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("domain %q: duplicate id", d.ID)
		}
		seen[d.ID] = true
		switch d.Language {
		case "fr", "en", "both":
		default:
			return nil, fmt.Errorf("domain %q: language must be fr, en or both", d.ID)
		}
		if d.Prompt == "" {
			return nil, fmt.Errorf("domain %q: prompt is required", d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
	}
	return f.Domains, nil
}
