package knowledge

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Relation names used by the reasoner.
const (
	RelPersonaFocus       = "persona_focus"
	RelTopicPriority      = "topic_priority"
	RelRoleRequires       = "role_requires"
	RelSkillPrereq        = "skill_prereq"
	RelSkillAlias         = "skill_alias"
	RelQuestionAssesses   = "question_assesses"
	RelQuestionFollowup   = "question_followup"
	RelTopicCovers        = "topic_covers"
	RelCandidateMentioned = "candidate_mentioned"
)

type seedFile struct {
	PersonaFocus []struct {
		Persona string   `yaml:"persona"`
		Skills  []string `yaml:"skills"`
	} `yaml:"persona_focus"`
	TopicPriority []struct {
		Persona string `yaml:"persona"`
		Topics  []struct {
			Topic  string `yaml:"topic"`
			Weight int    `yaml:"weight"`
		} `yaml:"topics"`
	} `yaml:"topic_priority"`
	RoleRequires []struct {
		Role   string `yaml:"role"`
		Skills []struct {
			Skill string `yaml:"skill"`
			Level string `yaml:"level"`
		} `yaml:"skills"`
	} `yaml:"role_requires"`
	SkillPrereq []struct {
		Skill   string   `yaml:"skill"`
		Prereqs []string `yaml:"prereqs"`
	} `yaml:"skill_prereq"`
	SkillAlias []struct {
		Skill   string   `yaml:"skill"`
		Phrases []string `yaml:"phrases"`
	} `yaml:"skill_alias"`
	QuestionAssesses []struct {
		Question string   `yaml:"question"`
		Skills   []string `yaml:"skills"`
	} `yaml:"question_assesses"`
	QuestionFollowup []struct {
		Question string `yaml:"question"`
		Next     string `yaml:"next"`
	} `yaml:"question_followup"`
	TopicCovers []struct {
		Topic  string   `yaml:"topic"`
		Skills []string `yaml:"skills"`
	} `yaml:"topic_covers"`
}

// LoadSeed parses a YAML fact file into s.
func LoadSeed(s *Store, data []byte) error {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}

	var err error
	add := func(rel string, args ...any) {
		if err != nil {
			return
		}
		_, err = s.AddAtom(rel, args...)
	}

	for _, pf := range f.PersonaFocus {
		for _, skill := range pf.Skills {
			add(RelPersonaFocus, pf.Persona, skill)
		}
	}
	for _, tp := range f.TopicPriority {
		for _, t := range tp.Topics {
			add(RelTopicPriority, tp.Persona, t.Topic, t.Weight)
		}
	}
	for _, rr := range f.RoleRequires {
		for _, sk := range rr.Skills {
			add(RelRoleRequires, rr.Role, sk.Skill, sk.Level)
		}
	}
	for _, sp := range f.SkillPrereq {
		for _, p := range sp.Prereqs {
			add(RelSkillPrereq, sp.Skill, p)
		}
	}
	for _, sa := range f.SkillAlias {
		for _, p := range sa.Phrases {
			add(RelSkillAlias, sa.Skill, p)
		}
	}
	for _, qa := range f.QuestionAssesses {
		for _, skill := range qa.Skills {
			add(RelQuestionAssesses, qa.Question, skill)
		}
	}
	for _, qf := range f.QuestionFollowup {
		add(RelQuestionFollowup, qf.Question, qf.Next)
	}
	for _, tc := range f.TopicCovers {
		for _, skill := range tc.Skills {
			add(RelTopicCovers, tc.Topic, skill)
		}
	}
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	return nil
}

// NewDefault builds a reasoner over the embedded interview facts.
func NewDefault() (*Reasoner, error) {
	s := NewStore()
	if err := LoadSeed(s, defaultSeed); err != nil {
		return nil, err
	}
	return NewReasoner(s), nil
}
