package all

import (
	// Import all the output drivers so they register themselves
	_ "github.com/darianmavgo/dumpconv/converters/csv"
	_ "github.com/darianmavgo/dumpconv/converters/excel"
	_ "github.com/darianmavgo/dumpconv/converters/html"
	_ "github.com/darianmavgo/dumpconv/converters/json"
	_ "github.com/darianmavgo/dumpconv/converters/markdown"
	_ "github.com/darianmavgo/dumpconv/converters/sqlite"
)
