package handlers

import (
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description, typ string, extra object) object {
	schema := object{"type": typ}
	for k, v := range extra {
		schema[k] = v
	}
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func paginationParams() []object {
	return []object{
		queryParam("limit", "Records to return (1-1000, default 100)", "integer", object{"minimum": 1, "maximum": 1000, "default": 100}),
		queryParam("offset", "Records to skip (default 0)", "integer", object{"minimum": 0, "default": 0}),
	}
}

func nullableNumber() object {
	return object{"type": "number", "nullable": true}
}

func jsonResponse(description string, properties object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{
				"schema": object{"type": "object", "properties": properties},
			},
		},
	}
}

func pageOf(item object) object {
	return object{
		"total_records": object{"type": "integer"},
		"limit":         object{"type": "integer"},
		"offset":        object{"type": "integer"},
		"data":          object{"type": "array", "items": object{"type": "object", "properties": item}},
	}
}

func errorResponse(description string) object {
	return jsonResponse(description, object{
		"error":   object{"type": "string"},
		"message": object{"type": "string"},
		"code":    object{"type": "integer"},
		"details": object{"type": "object"},
	})
}

// OpenAPISpec serves the OpenAPI 3.0 document for the API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	weatherItem := object{
		"id":            object{"type": "integer"},
		"station_id":    object{"type": "string"},
		"date":          object{"type": "string", "format": "date"},
		"max_temp":      nullableNumber(),
		"min_temp":      nullableNumber(),
		"precipitation": nullableNumber(),
	}
	statsItem := object{
		"station_id":          object{"type": "string"},
		"year":                object{"type": "integer"},
		"avg_max_temp":        nullableNumber(),
		"avg_min_temp":        nullableNumber(),
		"total_precipitation": nullableNumber(),
	}
	cropItem := object{
		"id":          object{"type": "integer"},
		"station_id":  object{"type": "string"},
		"year":        object{"type": "integer"},
		"yield_value": object{"type": "number"},
	}
	stationItem := object{
		"station_id":        object{"type": "string"},
		"observation_count": object{"type": "integer"},
		"first_date":        object{"type": "string", "format": "date-time"},
		"last_date":         object{"type": "string", "format": "date-time"},
	}

	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Weather ETL API",
			"description": "Ingestion of tab-separated weather and crop-yield files into PostgreSQL, with read APIs and yearly aggregates",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/upload_file": object{
				"post": object{
					"summary":     "Upload a data file",
					"description": "Detects the file schema from its column count (4 = weather, 2 = crop yield), cleans the rows and inserts them batch by batch. Rows whose natural key already exists are skipped. The station id is the filename without its extension.",
					"requestBody": object{
						"required": true,
						"content": object{
							"multipart/form-data": object{
								"schema": object{
									"type":       "object",
									"properties": object{"file": object{"type": "string", "format": "binary"}},
									"required":   []string{"file"},
								},
							},
						},
					},
					"responses": object{
						"200": jsonResponse("File ingested", object{
							"message":            object{"type": "string"},
							"run_id":             object{"type": "string"},
							"filename":           object{"type": "string"},
							"station_id":         object{"type": "string"},
							"schema":             object{"type": "string", "enum": []string{"weather", "crop_yield"}},
							"total_records":      object{"type": "integer"},
							"valid_records":      object{"type": "integer"},
							"inserted_records":   object{"type": "integer"},
							"inserted_estimated": object{"type": "boolean"},
							"batches":            object{"type": "integer"},
							"time_taken":         object{"type": "number"},
						}),
						"400": errorResponse("Unrecognized format, unreadable file, missing file or bad filename"),
						"413": errorResponse("Upload too large"),
						"500": errorResponse("A batch failed to commit; details carry the batch index and committed record count"),
					},
				},
			},
			"/api/weather": object{
				"get": object{
					"summary":     "List weather records",
					"description": "Filter, sort and paginate daily weather records",
					"parameters": append([]object{
						queryParam("station_id", "Filter by station id", "string", nil),
						queryParam("start_date", "Earliest date (YYYY-MM-DD)", "string", object{"format": "date"}),
						queryParam("end_date", "Latest date (YYYY-MM-DD)", "string", object{"format": "date"}),
						queryParam("order_by", "Sort field", "string", object{
							"enum":    []string{"id", "station_id", "date", "max_temp", "min_temp", "precipitation"},
							"default": "date",
						}),
						queryParam("order_direction", "Sort direction", "string", object{"enum": []string{"asc", "desc"}, "default": "asc"}),
					}, paginationParams()...),
					"responses": object{
						"200": jsonResponse("Weather records", pageOf(weatherItem)),
						"400": errorResponse("Invalid query parameter"),
					},
				},
			},
			"/api/weather/stats": object{
				"get": object{
					"summary":     "List yearly weather statistics",
					"description": "Per station and year averages of max/min temperature and total precipitation. Aggregates with no contributing rows are null.",
					"parameters": append([]object{
						queryParam("station_id", "Filter by station id", "string", nil),
						queryParam("year", "Filter by year", "integer", nil),
					}, paginationParams()...),
					"responses": object{
						"200": jsonResponse("Statistics", pageOf(statsItem)),
						"400": errorResponse("Invalid query parameter"),
					},
				},
			},
			"/api/crop_yield": object{
				"get": object{
					"summary": "List crop yields",
					"parameters": append([]object{
						queryParam("station_id", "Filter by station id", "string", nil),
						queryParam("year", "Filter by year", "integer", nil),
					}, paginationParams()...),
					"responses": object{
						"200": jsonResponse("Crop yields", pageOf(cropItem)),
						"400": errorResponse("Invalid query parameter"),
					},
				},
			},
			"/api/stations": object{
				"get": object{
					"summary":    "List stations with weather observations",
					"parameters": paginationParams(),
					"responses": object{
						"200": jsonResponse("Stations", pageOf(stationItem)),
					},
				},
			},
			"/api/stations/{station_id}": object{
				"get": object{
					"summary": "Get one station",
					"parameters": []object{
						{"name": "station_id", "in": "path", "required": true, "schema": object{"type": "string"}},
					},
					"responses": object{
						"200": jsonResponse("Station", stationItem),
						"404": errorResponse("Station has no observations"),
					},
				},
			},
			"/api/migrate": object{
				"post": object{
					"summary": "Apply pending schema migrations",
					"responses": object{
						"200": jsonResponse("Migrations applied", object{
							"message": object{"type": "string"},
							"applied": object{"type": "array", "items": object{"type": "string"}},
						}),
						"500": errorResponse("Migration failed"),
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": jsonResponse("API and database are up", object{"status": object{"type": "string"}}),
						"503": jsonResponse("Database unavailable", object{"status": object{"type": "string"}}),
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
						},
					},
				},
			},
		},
	}

	sendJSON(w, spec, http.StatusOK)
}
