package params

// Kind is the expected JSON kind of a field.
type Kind int

const (
	KindBool Kind = iota + 1
	KindInt
	KindFloat
	KindString
	KindList
	KindSection
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSection:
		return "mapping"
	default:
		return "unknown"
	}
}

// Field describes one checked field of a section. Rule is a validator tag
// applied after the kind check passes.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Rule     string
}

// SectionSchema lists the checked fields of one section. Fields not listed
// are carried through unvalidated.
type SectionSchema struct {
	Name     string
	Required bool
	Fields   []Field
}

// topLevel holds the scalar fields outside any section.
var topLevel = []Field{
	{Name: KeyResultPath, Kind: KindString, Required: true, Rule: "min=1"},
	{Name: KeyBegin, Kind: KindFloat, Required: true, Rule: "gte=0"},
	{Name: KeyEnd, Kind: KindFloat, Required: true, Rule: "gt=0"},
}

// Schema is the static table consulted by validation, in reporting order.
var Schema = []SectionSchema{
	{
		Name:     SectionCoSimulation,
		Required: true,
		Fields: []Field{
			{Name: "co-simulation", Kind: KindBool, Required: true},
			{Name: "nb_MPI_nest", Kind: KindInt, Required: true, Rule: "integral,gte=0,lte=1000"},
			{Name: "level_log", Kind: KindInt, Required: true, Rule: "integral,gte=0,lte=4"},
			{Name: "cluster", Kind: KindBool},
			{Name: "record_MPI", Kind: KindBool},
			{Name: "synchronization", Kind: KindFloat, Rule: "gt=0.1,lt=1000"},
			{Name: "id_region_nest", Kind: KindList, Rule: "min=1,dive,integral,gte=0"},
		},
	},
	{
		Name: SectionNest,
		Fields: []Field{
			{Name: "sim_resolution", Kind: KindFloat, Required: true, Rule: "gt=0.001,lte=10"},
			{Name: "master_seed", Kind: KindInt, Required: true, Rule: "integral,gte=1,lte=2147483647"},
			{Name: "total_num_virtual_procs", Kind: KindInt, Rule: "integral,gte=1,lte=1000"},
			{Name: "verbosity", Kind: KindInt, Rule: "integral,gte=0,lte=100"},
		},
	},
	{
		Name: SectionNestTopology,
		Fields: []Field{
			{Name: "nb_region", Kind: KindInt, Rule: "integral,gte=1"},
			{Name: "nb_neuron_by_region", Kind: KindInt, Rule: "integral,gte=1"},
			{Name: "percentage_inhibitory", Kind: KindFloat, Rule: "gte=0,lte=1"},
			{Name: PopulationExcitatory, Kind: KindSection},
			{Name: PopulationInhibitory, Kind: KindSection},
		},
	},
	{
		Name: SectionNestConnection,
		Fields: []Field{
			{Name: "weight_local", Kind: KindFloat},
			{Name: "weight_global", Kind: KindFloat},
			{Name: "g", Kind: KindFloat, Rule: "gte=0"},
			{Name: "p_connect", Kind: KindFloat, Rule: "gte=0,lte=1"},
			{Name: "nb_external_synapse", Kind: KindInt, Rule: "integral,gte=0"},
			{Name: "velocity", Kind: KindFloat, Rule: "gt=0"},
			{Name: "path_weight", Kind: KindString},
			{Name: "path_distance", Kind: KindString},
		},
	},
	{
		Name: SectionNestToTVB,
		Fields: []Field{
			{Name: "synch", Kind: KindFloat, Rule: "gt=0"},
			{Name: "resolution", Kind: KindFloat, Rule: "gt=0"},
			{Name: "width", Kind: KindFloat, Rule: "gt=0"},
			{Name: "nb_neurons", Kind: KindFloat, Rule: "gt=0"},
			{Name: "nb_sources", Kind: KindInt, Rule: "integral,gte=1"},
			{Name: "smoothing", Kind: KindFloat, Rule: "gte=0,lt=1"},
			{Name: "level_log", Kind: KindInt, Rule: "integral,gte=0,lte=4"},
		},
	},
	{
		Name: SectionTVBToNest,
		Fields: []Field{
			{Name: "synch", Kind: KindFloat, Rule: "gt=0"},
			{Name: "seed", Kind: KindInt, Rule: "integral"},
			{Name: "nb_synapses", Kind: KindInt, Rule: "integral,gte=0"},
			{Name: "level_log", Kind: KindInt, Rule: "integral,gte=0,lte=4"},
		},
	},
}
