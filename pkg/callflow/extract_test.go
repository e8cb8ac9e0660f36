package callflow

import "testing"

func TestExtractors(t *testing.T) {
	tests := []struct {
		name    string
		extract Extractor
		input   string
		want    string
		wantOK  bool
	}{
		{"name plain", ExtractName, "Jane Doe", "Jane Doe", true},
		{"name lead-in", ExtractName, "Hi, my name is jane doe.", "Jane Doe", true},
		{"name this is", ExtractName, "this is Bob", "Bob", true},
		{"name not stripped from inside word", ExtractName, "Okafor", "Okafor", true},
		{"name apostrophe", ExtractName, "it's Sinead O'Neil", "Sinead O'neil", true},
		{"name digits", ExtractName, "R2D2", "", false},
		{"name too long", ExtractName, "I would rather not say that right now", "", false},
		{"name refusal", ExtractName, "no", "", false},
		{"name empty", ExtractName, "yes", "", false},

		{"phone dashed", ExtractPhone, "555-123-4567", "5551234567", true},
		{"phone country code", ExtractPhone, "+1 (555) 123 4567", "5551234567", true},
		{"phone short", ExtractPhone, "123 4567", "", false},
		{"phone words", ExtractPhone, "I don't know it", "", false},

		{"address", ExtractAddress, "It's 12 Main Street.", "12 Main Street", true},
		{"address abbreviated", ExtractAddress, "4500B Oak Blvd apt 3", "4500B Oak Blvd apt 3", true},
		{"address no number", ExtractAddress, "Main Street", "", false},
		{"address no street", ExtractAddress, "unit 12", "", false},

		{"time day", ExtractTime, "tomorrow morning", "tomorrow morning", true},
		{"time clock", ExtractTime, "how about 3:30 pm", "3:30 pm", true},
		{"time dotted", ExtractTime, "maybe 10 a.m. Friday", "10 a.m. Friday", true},
		{"time weekday", ExtractTime, "Next Tuesday please", "Next Tuesday please", true},
		{"time asap", ExtractTime, "ASAP", "ASAP", true},
		{"time none", ExtractTime, "whenever", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.extract(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("extract(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
