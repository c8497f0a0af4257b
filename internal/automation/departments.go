package automation

import "github.com/civicsight/civicsight/internal/model"

type departmentInfo struct {
	Name         string
	ResponseTime string
}

// departments routes each category to the city department that handles it,
// with the response window the city advertises.
var departments = map[model.Category]departmentInfo{
	model.CategoryRoadCrack:           {"Public Works - Street Repair", "2-5 business days"},
	model.CategorySidewalkCrack:       {"Public Works - Sidewalk Maintenance", "7-14 business days"},
	model.CategoryGraffiti:            {"Public Works - Graffiti Abatement", "48 hours"},
	model.CategoryOverflowingTrash:    {"Public Works - Street Cleaning", "24-48 hours"},
	model.CategoryFadedStreetMarkings: {"Municipal Transportation Agency", "30 days"},
	model.CategoryBrokenStreetLight:   {"Public Utilities - Streetlights", "5-10 business days"},
	model.CategoryFallenTree:          {"Public Works - Urban Forestry", "24 hours"},
}

// Department returns the responsible department and estimated response time
// for a category. Unknown categories route to the general services desk.
func Department(c model.Category) (name, responseTime string) {
	info, ok := departments[c]
	if !ok {
		return "General Services", "varies"
	}
	return info.Name, info.ResponseTime
}

// serviceCodes are the Open311-style service codes the city forms expect.
var serviceCodes = map[model.Category]string{
	model.CategoryRoadCrack:           "PW:BSM:Pothole",
	model.CategorySidewalkCrack:       "PW:BSM:Sidewalk",
	model.CategoryGraffiti:            "PW:GRAF:Abatement",
	model.CategoryOverflowingTrash:    "PW:BSSR:Receptacle",
	model.CategoryFadedStreetMarkings: "MTA:SIGN:Markings",
	model.CategoryBrokenStreetLight:   "PUC:SL:Outage",
	model.CategoryFallenTree:          "PW:BUF:Tree",
}

// ServiceCode returns the Open311-style service code for a category, empty
// when the category has none.
func ServiceCode(c model.Category) string {
	return serviceCodes[c]
}
