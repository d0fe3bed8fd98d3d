package lang

func init() {
	Register(&LanguageSpec{
		Language:          Ruby,
		FileExtensions:    []string{".rb"},
		ClassNodeTypes:    []string{"class", "module"},
		ModuleNodeTypes:   []string{"program"},
		FunctionNodeTypes: []string{"method"},
		FieldNodeTypes:    []string{"assignment", "var_field", "instance_variable", "class_variable"},
		CallNodeTypes:     []string{"call", "command", "command_call"},
		ImportNodeTypes:   []string{"require", "require_relative"},
		ImportFromTypes:   []string{"require", "require_relative"},
		ConstructorNames:  []string{"new", "initialize"},
	})
}
