package InputParameters

import (
	"fmt"
	"strings"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML conversion parameters file
type ConversionParameters struct {
	Title      string   `json:"Title"`
	Parallel   bool     `json:"Parallel"`
	Workers    int      `json:"Workers"` // Zero means one per CPU
	SkipFields []string `json:"SkipFields"`
	Summary    bool     `json:"Summary"`   // Write a YAML mesh summary next to each input
	OutputDir  string   `json:"OutputDir"` // Empty writes beside the input file
}

// NewConversionParameters returns the defaults used without a parameters file
func NewConversionParameters() *ConversionParameters {
	return &ConversionParameters{
		Title:    "frd conversion",
		Parallel: true,
		Summary:  true,
	}
}

func (ip *ConversionParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.Validate()
}

func (ip *ConversionParameters) Validate() error {
	if ip.Workers < 0 {
		return fmt.Errorf("Workers must be >= 0, got %d", ip.Workers)
	}
	for _, name := range ip.SkipFields {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("SkipFields contains an empty name")
		}
	}
	return nil
}

func (ip *ConversionParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%v]\t\t\t= Parallel\n", ip.Parallel)
	fmt.Printf("[%d]\t\t\t\t= Workers\n", ip.Workers)
	fmt.Printf("%v\t= SkipFields\n", ip.SkipFields)
	fmt.Printf("[%v]\t\t\t= Summary\n", ip.Summary)
	fmt.Printf("\"%s\"\t\t\t= OutputDir\n", ip.OutputDir)
}
