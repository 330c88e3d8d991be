package config

// Step names that may be bound to an external command. They are the
// numerical steps of the pipeline whose bodies live outside this module.
const (
	StepPreprocess         = "Preprocess"
	StepFormatDan          = "FormatDan"
	StepLoadEmbeddings     = "LoadEmbeddings"
	StepTrainDAN           = "TrainDAN"
	StepComputeDANOutput   = "ComputeDANOutput"
	StepTrainClassifier    = "TrainClassifier"
	StepEvaluateClassifier = "EvaluateClassifier"
	StepCreateGuesses      = "CreateGuesses"
)

// KnownSteps lists every step name accepted under 'steps'.
var KnownSteps = []string{
	StepPreprocess,
	StepFormatDan,
	StepLoadEmbeddings,
	StepTrainDAN,
	StepComputeDANOutput,
	StepTrainClassifier,
	StepEvaluateClassifier,
	StepCreateGuesses,
}

// Template variables available to per-fold path templates.
const (
	VarFold   = "fold"
	VarWeight = "weight"
)

// Config is the top-level structure of a pipeline YAML file.
type Config struct {
	SchemaVersion string `yaml:"schemaVersion"`
	Name          string `yaml:"name"`
	// Workers bounds concurrent task bodies. Zero selects one per CPU.
	Workers  int             `yaml:"workers,omitempty"`
	Paths    Paths           `yaml:"paths"`
	Guessers []string        `yaml:"guessers,omitempty"`
	Expo     Expo            `yaml:"expo"`
	Steps    map[string]Step `yaml:"steps,omitempty"`

	// FilePath is the source of the configuration, for messages only.
	FilePath string `yaml:"-"`
}

// Paths locates every artifact of the pipeline. Pred, Meta, VWAudit,
// ExpoBuzz and ExpoFinal are templates over {{ .fold }} and {{ .weight }}.
type Paths struct {
	QuestionDB    string `yaml:"question_db"`
	GuessDB       string `yaml:"guess_db"`
	GuesserDir    string `yaml:"guesser_dir"`
	ExpoQuestions string `yaml:"expo_questions"`
	Pred          string `yaml:"pred"`
	Meta          string `yaml:"meta"`
	VWAudit       string `yaml:"vw_audit"`
	ExpoBuzz      string `yaml:"expo_buzz"`
	ExpoFinal     string `yaml:"expo_final"`
}

// Expo selects the fold and weight built by AllExpo.
type Expo struct {
	Fold   string `yaml:"fold"`
	Weight int    `yaml:"weight"`
}

// Step binds a pipeline step to an external command.
type Step struct {
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	// Secrets name variables of the taskgraph environment passed through to
	// the command. Their values are redacted from error messages.
	Secrets []string `yaml:"secrets,omitempty"`
	// Outputs are the files the command must produce.
	Outputs []string `yaml:"outputs,omitempty"`
	Timeout string   `yaml:"timeout,omitempty"`
}

// Defaults returns the configuration used for fields left empty.
func Defaults() Config {
	return Config{
		SchemaVersion: "v1.0.0",
		Name:          "qanta",
		Paths: Paths{
			QuestionDB:    "data/questions.db",
			GuessDB:       "output/guesses.db",
			GuesserDir:    "output/guesser",
			ExpoQuestions: "output/expo/test.questions.csv",
			Pred:          "output/predictions/{{ .fold }}.sentence.{{ .weight }}.pred",
			Meta:          "output/vw_input/{{ .fold }}.sentence.{{ .weight }}.meta",
			VWAudit:       "output/predictions/{{ .fold }}.sentence.{{ .weight }}.audit",
			ExpoBuzz:      "output/expo/{{ .fold }}.{{ .weight }}.buzz.csv",
			ExpoFinal:     "output/expo/{{ .fold }}.{{ .weight }}.final.csv",
		},
		Guessers: []string{"qanta.guesser.frequency.FrequencyGuesser"},
		Expo:     Expo{Fold: "test", Weight: 16},
	}
}

// applyDefaults fills every empty field of c from Defaults. Guessers are
// only defaulted when the key is absent.
func applyDefaults(c *Config) {
	d := Defaults()
	if c.Name == "" {
		c.Name = d.Name
	}
	setIfEmpty(&c.Paths.QuestionDB, d.Paths.QuestionDB)
	setIfEmpty(&c.Paths.GuessDB, d.Paths.GuessDB)
	setIfEmpty(&c.Paths.GuesserDir, d.Paths.GuesserDir)
	setIfEmpty(&c.Paths.ExpoQuestions, d.Paths.ExpoQuestions)
	setIfEmpty(&c.Paths.Pred, d.Paths.Pred)
	setIfEmpty(&c.Paths.Meta, d.Paths.Meta)
	setIfEmpty(&c.Paths.VWAudit, d.Paths.VWAudit)
	setIfEmpty(&c.Paths.ExpoBuzz, d.Paths.ExpoBuzz)
	setIfEmpty(&c.Paths.ExpoFinal, d.Paths.ExpoFinal)
	if c.Guessers == nil {
		c.Guessers = d.Guessers
	}
	setIfEmpty(&c.Expo.Fold, d.Expo.Fold)
	if c.Expo.Weight == 0 {
		c.Expo.Weight = d.Expo.Weight
	}
}

func setIfEmpty(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
