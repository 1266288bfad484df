package graphql

var specifiedScalarTypeNames = []string{
	"String",
	"Int",
	"Float",
	"Boolean",
	"ID",
}

func IsSpecifiedScalarType(typeName string) bool {
	for _, name := range specifiedScalarTypeNames {
		if name == typeName {
			return true
		}
	}
	return false
}
